// Package prekey manages the signed and one-time pre-key lifecycle.
//
// Maintain is meant to run on a schedule: it rotates the signed pre-key
// once it is older than the rotation interval, deletes superseded signed
// pre-keys after the retention period, and tops the one-time pool back up
// when it runs low. Publish uploads the current public material to the
// registry.
package prekey
