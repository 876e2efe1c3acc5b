package utils

const DefaultBufferSize = 1024 * 1024 // 1MB read buffer per segment
const DefaultParallel = 4
const MaxParallel = 64
const ToolUserAgent = "rget/1.0"
const EnvPrefix = "RGET"
