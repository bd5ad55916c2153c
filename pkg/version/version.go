// Package version holds the current tunekit version.
package version

// Version is the current version of tunekit. It is overridden at link time for releases;
// the dev default keeps local builds obviously non-release.
var Version = "0.1.0-dev"
