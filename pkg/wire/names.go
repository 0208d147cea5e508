package wire

//go:generate go run ../../cmd/qmi-gen -input names.yaml -output names_gen.go

// MessageName returns the name of a request/response message id, or
// "unknown".
func MessageName(s Service, id uint16) string {
	if name, ok := messageNames[s][id]; ok {
		return name
	}
	return "unknown"
}

// IndicationName returns the name of an indication id, or "unknown".
func IndicationName(s Service, id uint16) string {
	if name, ok := indicationNames[s][id]; ok {
		return name
	}
	return "unknown"
}
