package domain

const (
	DefaultListenAddress              = "0.0.0.0:8080"
	DefaultObservabilityListenAddress = "0.0.0.0:9090"
	DefaultStorePath                  = "swaggerd.db"
	DefaultRequestTimeoutSeconds      = 30
)
