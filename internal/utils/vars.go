package utils

const ToolUserAgent = "AriaFetch-CLI"

// DefaultBufferSize is the streaming chunk size for downloads and hashing.
const DefaultBufferSize = 1024 * 1024 // 1 MiB

// StagingSuffix marks an in-progress download; a destination path never
// carries it.
const StagingSuffix = ".part"

const DefaultManifestPath = "AriaEverydayActivities_download_urls.json"
