// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package google

// Exported for white-box testing.
var (
	BuildConfig     = buildConfig
	ConvertMessages = convertMessages
)
