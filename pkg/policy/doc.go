// Package policy gates deployments with Open Policy Agent rules.
//
// Every enabled policy is evaluated against each release and once
// against the whole deployment set. Rules live in the deny set of their
// Rego package; an error-severity finding blocks the run, warnings are
// reported and ignored. Built-in policies cover naming, version
// pinning and namespace hygiene; additional .rego or .json policies can
// be loaded from disk and hot-reloaded on change.
package policy
