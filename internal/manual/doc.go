// Package manual lets an operator complete a stuck pending task by
// supplying the output themselves, bypassing the external services.
package manual
