package apiclient

// Paths relative to the API base URL
const (
	pathPhotos       = "/photos"
	pathPeaksFind    = "/peaks/find"
	pathAuthLogin    = "/auth/login"
	pathAuthRegister = "/auth/register"
	pathAuthMe       = "/auth/me"
	pathAuthLogout   = "/auth/logout"
	pathAuthRefresh  = "/auth/refresh"
)

// refreshCookie is the cookie the API sets on login and reads on refresh
const refreshCookie = "refresh_token"

// DefaultPeakLimit is used when a caller asks for a non-positive limit
const DefaultPeakLimit = 5
