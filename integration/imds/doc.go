// Package imds fetches temporary instance credentials from the EC2
// instance metadata service for a named IAM role. The SDK client handles
// the IMDSv2 token-then-query exchange; this package adds the
// role-document decoding the rotation orchestrator needs when injecting
// credentials into the transient renewal task.
package imds
