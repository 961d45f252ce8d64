// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package view

import (
	"github.com/huddlechat/huddle/lib/directory"
	"github.com/huddlechat/huddle/lib/failure"
)

// UserList projects the user directory without the signed-in user.
type UserList struct {
	selfID    string
	selfEmail string
	users     []directory.User
	notice    string
}

// NewUserList creates a user list for the signed-in identity.
func NewUserList(selfID, selfEmail string) *UserList {
	return &UserList{selfID: selfID, selfEmail: selfEmail}
}

// Set replaces the list and clears any notice.
func (l *UserList) Set(users []directory.User) {
	l.users = users
	l.notice = ""
}

// SetError empties the list and records the user-facing notice for err.
func (l *UserList) SetError(err error) {
	l.users = nil
	l.notice = failure.Notice(err)
}

// Items returns the users other than the signed-in one.
func (l *UserList) Items() []directory.User {
	items := make([]directory.User, 0, len(l.users))
	for _, user := range l.users {
		if user.ID == l.selfID || (l.selfEmail != "" && user.Email == l.selfEmail) {
			continue
		}
		items = append(items, user)
	}
	return items
}

// Find returns the listed user whose ID, name, or email is query.
func (l *UserList) Find(query string) (directory.User, bool) {
	for _, user := range l.Items() {
		if user.ID == query || user.Name == query || (user.Email != "" && user.Email == query) {
			return user, true
		}
	}
	return directory.User{}, false
}

// Notice returns the notice text, empty when the list loaded.
func (l *UserList) Notice() string { return l.notice }
