package main

// General API documentation for swaggo. Regenerate with `swag init -g cmd/rkllmd/docs.go`.
//
// @title           rkllmd API
// @version         1.0
// @description     HTTP chat API over a single RKLLM inference engine.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
