// Package acme implements the ACME client collaborator on top of
// go-acme/lego. It owns the trusted local certificate storage: issued
// artifacts land under {dir}/live/{domain}/ as cert.pem, privkey.pem and
// fullchain.pem, and Renew only acts on domains already present there,
// matching the external contract that renewal covers tracked domains only.
//
// Issuance failures never touch existing artifacts: new files are written
// only after the ACME exchange succeeds, so a failed renewal leaves the
// still-valid previous certificate in place.
package acme
