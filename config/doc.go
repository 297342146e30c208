// Package config loads the application-wide configuration, whose database
// section is handed verbatim to the database provider.
package config
