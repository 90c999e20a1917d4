// Package config defines the configuration surface of the previewkit
// bootstrap: the environment-derived connection values, the injected
// database credential, and the YAML manifest describing the services and
// collaborator commands a preview container is built from.
//
// Configuration is resolved once per invocation and treated as immutable.
// Missing or malformed values are reported as configuration errors before
// any service is contacted.
package config
