// Package agreement owns the upload pipeline that turns a draft plus three captures
// into a backend agreement, and the local feed of agreements created from this client.
package agreement
