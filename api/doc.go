// Package api is the HTTP surface of the user service: route wiring,
// request parsing and the JSON error envelope. Everything interesting
// happens in users/application; handlers here only translate.
package api
