// Package profile loads and saves the signed-in user's display name and avatar.
package profile
