package policy

// GetBuiltinPolicies returns the policies compiled into the binary.
// They encode house rules every deployment set is held to; users can
// disable individual policies by name.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		releaseNamingPolicy(),
		pinnedVersionsPolicy(),
		defaultNamespacePolicy(),
		atomicProductionPolicy(),
		declaredDependenciesPolicy(),
	}
}

// releaseNamingPolicy enforces release naming conventions.
func releaseNamingPolicy() Policy {
	return Policy{
		Name:        "release-naming",
		Description: "Release names must be lowercase alphanumeric with hyphens",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming"},
		Rego: `package helmdeck.policies.naming

import rego.v1

deny contains violation if {
	input.release
	name := input.release.name
	not regex.match("^[a-z0-9][a-z0-9-]*$", name)
	violation := {
		"message": sprintf("release name %q must be lowercase alphanumeric with hyphens", [name]),
		"severity": "error",
		"release": name,
	}
}
`,
	}
}

// pinnedVersionsPolicy requires pinned chart versions in production.
func pinnedVersionsPolicy() Policy {
	return Policy{
		Name:        "pinned-versions",
		Description: "Production releases must pin a chart version",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"production", "versioning"},
		Rego: `package helmdeck.policies.versions

import rego.v1

deny contains violation if {
	input.context.environment == "prod"
	input.release
	input.release.chart
	not input.release.local_chart_dir
	not input.release.version
	violation := {
		"message": sprintf("release %q must pin a chart version in prod", [input.release.name]),
		"severity": "error",
		"release": input.release.name,
	}
}
`,
	}
}

// defaultNamespacePolicy discourages deploying into the default namespace.
func defaultNamespacePolicy() Policy {
	return Policy{
		Name:        "default-namespace",
		Description: "Releases should not target the default namespace",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"namespaces"},
		Rego: `package helmdeck.policies.namespaces

import rego.v1

deny contains violation if {
	input.release
	input.release.namespace == "default"
	violation := {
		"message": sprintf("release %q targets the default namespace", [input.release.name]),
		"severity": "warning",
		"release": input.release.name,
	}
}
`,
	}
}

// atomicProductionPolicy recommends atomic installs in production.
func atomicProductionPolicy() Policy {
	return Policy{
		Name:        "atomic-production",
		Description: "Production releases should install with --atomic",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"production"},
		Rego: `package helmdeck.policies.atomic

import rego.v1

deny contains violation if {
	input.context.environment == "prod"
	input.release
	input.release.chart
	not input.release.atomic
	violation := {
		"message": sprintf("release %q should set atomic in prod", [input.release.name]),
		"severity": "warning",
		"release": input.release.name,
	}
}
`,
	}
}

// declaredDependenciesPolicy checks that every dependency names a release
// in the same deployment set.
func declaredDependenciesPolicy() Policy {
	return Policy{
		Name:        "declared-dependencies",
		Description: "Dependencies must reference releases in the deployment set",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"dependencies"},
		Rego: `package helmdeck.policies.dependencies

import rego.v1

names contains c.name if {
	some c in input.deployment.components
}

deny contains violation if {
	input.deployment
	some c in input.deployment.components
	some dep in c.dependencies
	not names[dep]
	violation := {
		"message": sprintf("release %q depends on unknown release %q", [c.name, dep]),
		"severity": "error",
		"release": c.name,
	}
}
`,
	}
}
