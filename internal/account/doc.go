// Package account provides account records for SwitchSync Core.
//
// Accounts are created lazily: the identity provider authenticates the
// user and issues a token, and the first API call materializes a row.
// Profile completion (name, phone, age, gender) marks the account as
// registered; clients use that flag to decide whether to show onboarding.
package account
