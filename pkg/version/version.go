package version

// Version is the current version of the interaction dashboard server
const Version = "1.0.0"

// Name is the product name reported in headers and status output
const Name = "interaction-dashboard"

// ServerHeader returns the Server header value for HTTP responses
func ServerHeader() string {
	return Name + "/" + Version
}
