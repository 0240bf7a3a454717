package encoder

import (
	"os"
	"runtime"

	"github.com/DRSN-tech/image-search/internal/domain"
)

// DetectDevice выбирает устройство по убыванию предпочтения: cuda, mps, cpu.
func DetectDevice() domain.Device {
	if hasCUDA() {
		return domain.DeviceCUDA
	}
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return domain.DeviceMPS
	}

	return domain.DeviceCPU
}

func hasCUDA() bool {
	if v, ok := os.LookupEnv("CUDA_VISIBLE_DEVICES"); ok && (v == "" || v == "-1") {
		return false
	}
	_, err := os.Stat("/proc/driver/nvidia/version")

	return err == nil
}
