// Package probe extracts duration and resolution from newly submitted assets
// by running ffprobe and decoding its JSON output.
//
// Probing is advisory: submission records whatever metadata is available and
// never fails because a probe did.
package probe
