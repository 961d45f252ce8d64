// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity turns a sign-in credential into the user's identity
// and email address.
//
// Resolution is two sequential calls against the identity provider: the
// OpenID userinfo endpoint yields the subject ID, and the management
// API's user record yields the email. A JWT credential whose exp claim
// has passed is rejected locally before either call.
//
// Errors are classified with lib/failure: a rejected or unusable
// credential is failure.AuthFailed (and matches ErrInvalidCredential
// when the provider refused it), a missing profile is
// failure.ProfileUnavailable (and matches ErrProfileUnavailable).
// Nothing is retried.
package identity
