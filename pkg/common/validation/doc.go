// Package validation provides the checks rowflow constructors and pipeline
// loaders run over configuration values.
//
// Every helper returns a *errors.ValidationError naming the module and
// field, so a misconfigured run reports exactly which setting to fix.
package validation
