package common

import (
	"fmt"
	"strings"
)

// GetPartition maps a region to its AWS partition.
func GetPartition(region string) string {
	regionLower := strings.ToLower(region)

	switch {
	case strings.HasPrefix(regionLower, "us-gov-"):
		return "aws-us-gov"
	case strings.HasPrefix(regionLower, "cn-"):
		return "aws-cn"
	}
	return "aws"
}

// GetIamPolicyArn rewrites the partition segment of an "arn:aws:..." ARN for gov and china regions.
func GetIamPolicyArn(region string, policyArn string) string {
	splits := strings.Split(policyArn, ":")
	if len(splits) < 2 {
		return policyArn
	}

	splits[1] = GetPartition(region)
	return strings.Join(splits, ":")
}

func GetEndpointAddress(region string, endpoint string) string {
	// china endpoints all follow {service}.{region}.amazonaws.com.cn
	if GetPartition(region) == "aws-cn" {
		return fmt.Sprintf("%s.cn", endpoint)
	}
	return endpoint
}

// NewEcrImageTag builds the fully qualified image name of an ECR hosted image.
// imagePrefix is an optional repository namespace, eg "mirror/".
func NewEcrImageTag(accountId string, region string, imageName string, imagePrefix string) string {
	registry := GetEndpointAddress(region, fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com", accountId, region))
	return fmt.Sprintf("%s/%s%s", registry, imagePrefix, imageName)
}
