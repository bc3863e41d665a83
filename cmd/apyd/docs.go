package main

// General API documentation for swaggo. Regenerate with
// `swag init -g cmd/apyd/docs.go`.
//
// @title           apyd API
// @version         1.0
// @description     Translation, analysis and generation over pooled engine pipelines.
//
// @license.name   GPL-3.0-or-later
// @license.url    https://www.gnu.org/licenses/gpl-3.0.html
//
// @BasePath  /
//
// @schemes http
