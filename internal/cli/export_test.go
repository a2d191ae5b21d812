package cli

var (
	NewRootCmd = newRootCmd
	Serve      = serve
)
