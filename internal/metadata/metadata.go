// Package metadata builds and validates the package descriptor that is
// injected into the homepage and reported to the UI.
package metadata

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dnswlt/miixkit/internal/errs"
	"golang.org/x/mod/semver"
)

const maxNameLength = 214

// npm package names: optional @scope/, then lowercase URL-safe characters.
var nameRE = regexp.MustCompile(`^(?:@[a-z0-9][a-z0-9._~-]*/)?[a-z0-9][a-z0-9._~-]*$`)

// Package is the descriptor of an interactive project.
type Package struct {
	Name     string         `json:"name"`
	Version  string         `json:"version"`
	Controls map[string]any `json:"controls"`
	Scenes   map[string]any `json:"scenes"`
}

// Create validates the parsed package.json pkg of the project in projectPath
// and returns its descriptor. All problems are reported in a single *errs.PluginError.
func Create(pkg map[string]any, projectPath string) (*Package, error) {
	var problems []string

	name, _ := pkg["name"].(string)
	switch {
	case name == "":
		problems = append(problems, `missing "name"`)
	case len(name) > maxNameLength:
		problems = append(problems, fmt.Sprintf("name %q is longer than %d characters", name, maxNameLength))
	case !nameRE.MatchString(name):
		problems = append(problems, fmt.Sprintf("name %q is not a valid package name", name))
	}

	version, _ := pkg["version"].(string)
	if version == "" {
		problems = append(problems, `missing "version"`)
	} else if !ValidVersion(version) {
		problems = append(problems, fmt.Sprintf("version %q is not a valid semantic version", version))
	}

	controls, scenes := map[string]any{}, map[string]any{}
	if raw, ok := pkg["interactive"]; ok {
		section, ok := raw.(map[string]any)
		if !ok {
			problems = append(problems, `"interactive" must be an object`)
		} else {
			var err error
			if controls, err = objectField(section, "controls"); err != nil {
				problems = append(problems, err.Error())
			}
			if scenes, err = objectField(section, "scenes"); err != nil {
				problems = append(problems, err.Error())
			}
		}
	}

	if len(problems) > 0 {
		return nil, errs.Pluginf("invalid package.json in %s: %s", projectPath, strings.Join(problems, "; "))
	}
	return &Package{
		Name:     name,
		Version:  version,
		Controls: controls,
		Scenes:   scenes,
	}, nil
}

// ValidVersion reports whether v is a semantic version as used in package.json
// (no leading "v").
func ValidVersion(v string) bool {
	if strings.HasPrefix(v, "v") {
		return false
	}
	return semver.IsValid("v"+v) && fullVersion(v)
}

// fullVersion rejects the "1" and "1.2" shorthands that semver.IsValid accepts.
func fullVersion(v string) bool {
	core, _, _ := strings.Cut(v, "-")
	core, _, _ = strings.Cut(core, "+")
	return strings.Count(core, ".") == 2
}

func objectField(section map[string]any, key string) (map[string]any, error) {
	raw, ok := section[key]
	if !ok || raw == nil {
		return map[string]any{}, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("interactive.%s must be an object", key)
	}
	return m, nil
}
