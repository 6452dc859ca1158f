package errors

// Template defines a registered error.
type Template struct {
	Category   Category
	Message    string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]Template{
	// ============================================
	// Configuration (E100-E119)
	// ============================================

	"E100": {
		Category:   CategoryConfig,
		Message:    "Config file not found",
		Suggestion: "Run 'obsidium init' to write a default obsidium.json",
	},
	"E101": {
		Category:   CategoryConfig,
		Message:    "Invalid config file",
		Suggestion: "Check that obsidium.json is valid JSON",
	},
	"E102": {
		Category: CategoryConfig,
		Message:  "Invalid config value",
	},
	"E103": {
		Category: CategoryConfig,
		Message:  "Cannot write config file",
	},
	"E104": {
		Category:   CategoryConfig,
		Message:    "Config file already exists",
		Suggestion: "Pass --force to overwrite it",
	},
	"E105": {
		Category:   CategoryConfig,
		Message:    "Cannot load registry data",
		Suggestion: "registry_data must name a JSON file of registry entries",
	},

	// ============================================
	// Network (E120-E139)
	// ============================================

	"E120": {
		Category:   CategoryNetwork,
		Message:    "Cannot listen",
		Suggestion: "Check that the address is free and well formed",
	},
	"E121": {
		Category: CategoryNetwork,
		Message:  "Cannot load TLS certificate",
	},
	"E122": {
		Category:   CategoryNetwork,
		Message:    "Server ping failed",
		Suggestion: "Check the address and that the server is running",
	},

	// ============================================
	// Storage (E140-E159)
	// ============================================

	"E140": {
		Category: CategoryStorage,
		Message:  "Cannot open world store",
	},
	"E141": {
		Category: CategoryStorage,
		Message:  "Cannot open ban list",
	},

	// ============================================
	// CLI (E160-E179)
	// ============================================

	"E160": {
		Category: CategoryCLI,
		Message:  "Server stopped with an error",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}
