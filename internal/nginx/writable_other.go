//go:build !unix

package nginx

func dirWritable(string) bool { return true }
