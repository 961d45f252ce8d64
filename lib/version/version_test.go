// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"bytes"
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	savedCommit, savedDirty, savedTime := GitCommit, GitDirty, BuildTime
	t.Cleanup(func() { GitCommit, GitDirty, BuildTime = savedCommit, savedDirty, savedTime })

	GitCommit, GitDirty, BuildTime = "abc1234", "true", "2026-01-01T00:00:00Z"
	if got, want := Info(), Version+" (abc1234-dirty, 2026-01-01T00:00:00Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}

	var buffer bytes.Buffer
	Print(&buffer, "huddle")
	if !strings.HasPrefix(buffer.String(), "huddle "+Version) || !strings.Contains(buffer.String(), "Platform:") {
		t.Errorf("Print output = %q", buffer.String())
	}
}
