package config

// Lua schema field names and globals
const (
	luaGlobalBridge     = "bridge"
	luaFieldChannel     = "channel"
	luaFieldPackage     = "package"
	luaFieldName        = "name"
	luaFieldAPK         = "apk"
	luaFieldAPILevel    = "api_level"
	luaFieldReleases    = "releases"
	luaFieldOwner       = "owner"
	luaFieldRepo        = "repo"
	luaFieldAPIURL      = "api_url"
	luaFieldKeyring     = "keyring"
	luaFieldTrustedRoot = "trusted_root"
	luaFieldIdentity    = "certificate_identity"
	luaFieldIssuer      = "certificate_issuer"
	luaFieldExpect      = "expect"
	luaFieldHTTP        = "http"
	luaFieldAddr        = "addr"
)

// Defaults applied to fields the config leaves empty.
const (
	DefaultChannel     = "com.roaddetection.security"
	DefaultPackageName = "com.roaddetection.vgtec_app"
	DefaultOwner       = "royhairul"
	DefaultRepo        = "vgtec-app"
	DefaultAPIURL      = "https://api.github.com"
	DefaultHTTPAddr    = "127.0.0.1:8765"
)

// Resource limits for user configs.
const (
	// MaxConfigSize is the largest config file accepted, in bytes.
	MaxConfigSize = 1 << 20

	// MaxAPILevel bounds api_level to catch typos like 330.
	MaxAPILevel = 100

	// MaxPackageNameLength matches the platform limit on package names.
	MaxPackageNameLength = 255
)
