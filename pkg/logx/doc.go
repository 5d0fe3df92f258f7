// Package logx is a thin structured-logging facade over zerolog.
//
// It exists so services depend on a small stable API (Logger + Field
// helpers) while sink configuration (console/file, level) can be swapped
// at runtime through Service.Apply without invalidating held loggers.
package logx
