package common

import (
	"strings"
	"testing"
)

const taskExecutionPolicy = "arn:aws:iam::aws:policy/service-role/AmazonECSTaskExecutionRolePolicy"

func TestUsGovPolicyArn(t *testing.T) {
	for _, region := range []string{"us-gov-west-1", "us-gov-east-1"} {
		res := GetIamPolicyArn(region, taskExecutionPolicy)
		if !strings.HasPrefix(res, "arn:aws-us-gov:") {
			t.Fatalf("Policy ARN for %s should start with 'arn:aws-us-gov', got %s", region, res)
		}
	}
}

func TestChinaPolicyArn(t *testing.T) {
	for _, region := range []string{"cn-north-1", "cn-northwest-1"} {
		res := GetIamPolicyArn(region, taskExecutionPolicy)
		if !strings.HasPrefix(res, "arn:aws-cn:") {
			t.Fatalf("Policy ARN for %s should start with 'arn:aws-cn', got %s", region, res)
		}
	}
}

func TestGenericRegionArn(t *testing.T) {
	for _, region := range []string{"us-west-2", "us-east-2"} {
		res := GetIamPolicyArn(region, taskExecutionPolicy)
		if res != taskExecutionPolicy {
			t.Fatalf("Policy ARN for %s should be unchanged, got %s", region, res)
		}
	}
}

func TestSecretsManagerArn(t *testing.T) {
	res := GetIamPolicyArn("cn-north-1", "arn:aws:secretsmanager:cn-north-1:123456789012:secret:pulumi/prod/*")
	if res != "arn:aws-cn:secretsmanager:cn-north-1:123456789012:secret:pulumi/prod/*" {
		t.Fatalf("unexpected secrets ARN %s", res)
	}
}

func TestChinaEndpoint(t *testing.T) {
	res := GetEndpointAddress("cn-north-1", "apigateway.cn-northwest-1.amazonaws.com")
	if !strings.HasSuffix(res, ".cn") {
		t.Fatalf("Endpoint address should end with '.cn'")
	}
}

func TestEcrImageTag(t *testing.T) {
	res := NewEcrImageTag("123456789012", "us-west-2", "pulumi/migrations:latest", "")
	if res != "123456789012.dkr.ecr.us-west-2.amazonaws.com/pulumi/migrations:latest" {
		t.Fatalf("unexpected image %s", res)
	}

	res = NewEcrImageTag("123456789012", "cn-north-1", "pulumi/migrations:1.2.3", "mirror/")
	if res != "123456789012.dkr.ecr.cn-north-1.amazonaws.com.cn/mirror/pulumi/migrations:1.2.3" {
		t.Fatalf("unexpected china image %s", res)
	}
}
