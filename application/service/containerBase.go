package service

import (
	"encoding/json"
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v7/go/aws/iam"
	"github.com/pulumi/pulumi-aws/sdk/v7/go/aws/kms"
	"github.com/pulumi/pulumi-self-hosted-installers/ecs-hosted/migrations/common"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// create an IAM role that ECS tasks are capable of assuming. rolePolicyDocs allows caller to inject additional policies as needed
func NewEcsRole(ctx *pulumi.Context, name string, region string, rolePolicyDocs pulumi.StringArray, options ...pulumi.ResourceOption) (*iam.Role, []pulumi.Resource, error) {
	role, err := iam.NewRole(ctx, fmt.Sprintf("%s-role", name), &iam.RoleArgs{
		AssumeRolePolicy: pulumi.String(`{
			"Version": "2012-10-17",
			"Statement": [{
				"Sid": "",
				"Effect": "Allow",
				"Principal": {
					"Service": "ecs-tasks.amazonaws.com"
				},
				"Action": "sts:AssumeRole"
			}]
		}`),
	}, options...)

	if err != nil {
		return nil, nil, err
	}

	policyArn := common.GetIamPolicyArn(region, string(iam.ManagedPolicyAmazonECSTaskExecutionRolePolicy))

	attachment, err := iam.NewRolePolicyAttachment(ctx, fmt.Sprintf("%s-role-attachment", name), &iam.RolePolicyAttachmentArgs{
		Role:      role.Name,
		PolicyArn: pulumi.String(policyArn),
	}, options...)

	if err != nil {
		return nil, nil, err
	}

	policies := []pulumi.Resource{attachment}
	for i, doc := range rolePolicyDocs {
		policy, err := iam.NewRolePolicy(ctx, fmt.Sprintf("%s-role-att-%d", name, i), &iam.RolePolicyArgs{
			Role:   role.Name,
			Policy: doc,
		}, options...)

		if err != nil {
			return nil, nil, err
		}
		policies = append(policies, policy)
	}

	return role, policies, nil
}

// IAM policy should allow ECS tasks to pull any Secret specified
func NewSecretsManagerPolicy(ctx *pulumi.Context, name string, region string, secretsPrefix string, kmsKeyId string, accountId string, options ...pulumi.ResourceOption) (pulumi.StringOutput, error) {
	key, err := kms.GetKey(ctx, fmt.Sprintf("%s-kms-key", name), pulumi.ID(kmsKeyId), nil, options...)
	if err != nil {
		return pulumi.StringOutput{}, err
	}

	return key.Arn.ApplyT(func(keyArn string) (string, error) {
		secretsArn := common.GetIamPolicyArn(region, fmt.Sprintf("arn:aws:secretsmanager:%s:%s:secret:%s/*", region, accountId, secretsPrefix))
		doc, err := json.Marshal(map[string]any{
			"Version": "2012-10-17",
			"Statement": []map[string]any{
				{
					"Effect": "Allow",
					"Action": []string{
						"secretsmanager:GetSecretValue",
						"kms:Decrypt",
					},
					"Resource": []string{
						secretsArn,
						keyArn,
					},
				},
			},
		})

		if err != nil {
			return "", err
		}

		return string(doc), nil
	}).(pulumi.StringOutput), nil
}

func CreateEnvVar(name string, value string) map[string]any {
	return map[string]any{
		"name":  name,
		"value": value,
	}
}

type ContainerBaseArgs struct {
	AccountId                               string
	EnablePrivateLoadBalancerAndLimitEgress bool
	KmsServiceKeyId                         string
	PrefixListId                            pulumi.StringOutput
	PrivateSubnetIds                        pulumi.StringArrayOutput
	Profile                                 string
	Region                                  string
	SecretsManagerPrefix                    string
	VpcId                                   pulumi.StringOutput
	VpcEndpointSecurityGroupId              pulumi.StringOutput
}
