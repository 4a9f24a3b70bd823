// Package config loads medtrail's runtime configuration.
//
// Values are layered: built-in defaults, then the YAML file named by
// MEDTRAIL_CONFIG_FILE, then a .env file, then MEDTRAIL_* environment
// variables. The result is validated before it is returned.
//
//	MEDTRAIL_STORAGE_BACKEND=postgres
//	MEDTRAIL_POSTGRES_URL=postgres://medtrail@localhost/medtrail?sslmode=disable
//	MEDTRAIL_AUDIT_WRITE_TIMEOUT=5s
//	MEDTRAIL_TRUST_IDENTITY_HEADERS=true
package config
