// Package account covers signup, login, logout and the session guard in front of
// the authenticated commands.
package account
