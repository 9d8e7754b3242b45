package handlers

// Test-only aliases so the external handlers_test package can use the
// request/response shapes without exporting them from the package proper.
type (
	GenerateRequest = generateRequest
	BatchResponse   = batchResponse
	SlotsResponse   = slotsResponse
	ReferenceInfo   = referenceInfo
)
