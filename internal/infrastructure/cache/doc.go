// Package cache keeps the most recent reading per device in Redis.
//
// Keys have the form deviceserver:reading:{deviceId} and expire after the
// configured TTL, so a device that stops reporting drops out of the cache
// on its own. The relational store stays authoritative; the cache serves
// the latest-reading endpoint without touching the database.
package cache
