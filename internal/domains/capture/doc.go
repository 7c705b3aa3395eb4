// Package capture turns device recordings and photos into local capture results.
//
// Package layout:
// - adapters: permission gate and capture devices (file copy, external command)
// - policy: media validation and option defaults
// - usecase: the capture service that ties permission, device and validation together
package capture
