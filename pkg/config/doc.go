// Package config loads deployment set definitions from YAML, validates
// them structurally (struct tags) and semantically (CUE schema), resolves
// chart repository references and layers values files, and produces the
// in-memory engine.Deployment the executor consumes.
//
// Values files may be plain YAML or Starlark (.star) programs that export
// a `values` dict; files are merged in declaration order with a release's
// inline values applied last.
package config
