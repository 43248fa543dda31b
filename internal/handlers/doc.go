// Package handlers contains the topic handlers registered with the dispatcher.
//
// Registration order, which is also invocation order for a message that
// several handlers match:
//
//  1. AuditLogger: every topic, appended to audit_logs
//  2. SettingsChange: device/{id}/settings/changeSettings, kept in the settings store
//  3. ReadingsIngestion: device/{id}/readings/sendReading, inserted into device_readings
//  4. InfluxMirror, KafkaForwarder, ReadingCache, LiveFeed: optional
//     readings sinks, registered only when their backend is configured
//
// Handlers return errors for payloads they cannot use. The dispatcher
// logs and counts those errors; nothing is retried.
package handlers
