// Package secretsmanager implements the key/value secret collaborator on
// AWS Secrets Manager. It holds the shared archive password the renewal
// worker rotates each run: updates are read-modify-write merges that
// preserve unrelated fields in the secret document, and every write lands
// as a new secret version so rotation history stays auditable.
package secretsmanager
