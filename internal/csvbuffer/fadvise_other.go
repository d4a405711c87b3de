//go:build !linux

package csvbuffer

import "os"

func adviseSequential(*os.File) {}
