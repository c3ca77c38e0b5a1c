// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package release

import "regexp"

// setupVersionRe matches greedily to the last quote on the line, like the
// sed expression the release target has always used.
var setupVersionRe = regexp.MustCompile(`version='.*'`)

// UpdateSetupVersion replaces every version='...' occurrence in a setup.py
// with version. It reports whether the content changed.
func UpdateSetupVersion(content, version string) (string, bool) {
	out := setupVersionRe.ReplaceAllLiteralString(content, "version='"+version+"'")
	return out, out != content
}
