package contracts

import contractports "verisay/go-client/internal/domains/contracts/ports"

type AgreementMetadataService = contractports.AgreementMetadataService
type ResourceUploadService = contractports.ResourceUploadService
type UserDirectory = contractports.UserDirectory
type IdentityProvider = contractports.IdentityProvider
type DocumentStore = contractports.DocumentStore
type BlobStore = contractports.BlobStore
type FeedRepository = contractports.FeedRepository
type SessionStore = contractports.SessionStore
type PermissionGate = contractports.PermissionGate
type CaptureDevice = contractports.CaptureDevice
type SubmitObserver = contractports.SubmitObserver
type CategorizedError = contractports.CategorizedError
