// Package statusfile persists the last cycle's terminal state as a small
// JSON document. The record carries a consecutive-failure counter so
// operators and tests can assert how many times a failing cycle has been
// retried by the scheduler without scraping logs.
package statusfile
