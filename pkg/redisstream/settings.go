package redisstream

const (
	DefaultAddr     = "localhost:6379"
	DefaultGroup    = "cricket"
	DefaultConsumer = "cricket-1"
)
