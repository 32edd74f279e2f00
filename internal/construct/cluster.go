package construct

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/sourceplane/svcstack/internal/model"
)

// MaxAZLimit caps how many availability zones the network spans. Every AZ
// costs a NAT gateway, an EIP and subnets, which quickly runs into per-region
// account quotas.
const MaxAZLimit = 3

// subnetBits splits the VPC range into 8 equal slots, enough for a public
// and a private subnet in each of MaxAZLimit zones
const subnetBits = 3

// ClusterProps configures the network and compute cluster
type ClusterProps struct {
	Name              string
	CIDR              string
	MaxAZs            int
	NATGateways       int
	ContainerInsights bool
	Zone              ZoneResolver
}

// NetworkCluster is the network boundary, the ECS cluster bound to it and the
// resolved hosted zone
type NetworkCluster struct {
	VpcID          string
	PublicSubnets  []string
	PrivateSubnets []string
	// PublicRoutes must exist before anything internet-facing is created
	PublicRoutes []string
	ClusterID    string
	ClusterName  string
	Zone         HostedZone
}

// ClusterRef returns the ECS cluster name (Ref of AWS::ECS::Cluster)
func (c *NetworkCluster) ClusterRef() interface{} {
	return model.Ref(c.ClusterID)
}

// ClusterArn returns the ECS cluster ARN
func (c *NetworkCluster) ClusterArn() interface{} {
	return model.GetAtt(c.ClusterID, "Arn")
}

// NewCluster declares the VPC, subnets, gateways and the ECS cluster, and
// resolves the hosted zone
func NewCluster(ctx context.Context, scope Scope, props ClusterProps) (*NetworkCluster, error) {
	if props.Name == "" {
		return nil, fmt.Errorf("%w: cluster name", ErrMissingConfig)
	}
	if props.MaxAZs < 1 || props.MaxAZs > MaxAZLimit {
		return nil, fmt.Errorf("%w: maxAzs must be between 1 and %d, got %d", ErrInvalidProps, MaxAZLimit, props.MaxAZs)
	}
	if props.NATGateways < 1 || props.NATGateways > props.MaxAZs {
		return nil, fmt.Errorf("%w: natGateways must be between 1 and maxAzs (%d), got %d", ErrInvalidProps, props.MaxAZs, props.NATGateways)
	}
	prefix, err := netip.ParsePrefix(props.CIDR)
	if err != nil || !prefix.Addr().Is4() {
		return nil, fmt.Errorf("%w: network cidr %q is not an IPv4 prefix", ErrInvalidProps, props.CIDR)
	}
	if prefix.Bits() < 16 || prefix.Bits() > 24 {
		return nil, fmt.Errorf("%w: network cidr %q must be between /16 and /24", ErrInvalidProps, props.CIDR)
	}
	if props.Zone == nil {
		return nil, fmt.Errorf("%w: zone resolver", ErrMissingConfig)
	}

	zone, err := props.Zone.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	nc := &NetworkCluster{Zone: zone, ClusterName: props.Name}
	vpcScope := scope.Child("Vpc")

	nc.VpcID, _ = scope.AddResource("Vpc", "AWS::EC2::VPC", map[string]interface{}{
		"CidrBlock":          prefix.Masked().String(),
		"EnableDnsHostnames": true,
		"EnableDnsSupport":   true,
		"InstanceTenancy":    "default",
		"Tags":               nameTag(props.Name),
	})

	igwID, _ := vpcScope.AddResource("IGW", "AWS::EC2::InternetGateway", map[string]interface{}{
		"Tags": nameTag(props.Name),
	})
	attachID, _ := vpcScope.AddResource("VPCGW", "AWS::EC2::VPCGatewayAttachment", map[string]interface{}{
		"VpcId":             model.Ref(nc.VpcID),
		"InternetGatewayId": model.Ref(igwID),
	})

	cidrs := map[string]interface{}{
		"Fn::Cidr": []interface{}{model.GetAtt(nc.VpcID, "CidrBlock"), 1 << subnetBits, 32 - prefix.Bits() - subnetBits},
	}

	natIDs := make([]string, 0, props.NATGateways)
	for i := 0; i < props.MaxAZs; i++ {
		az := model.Select(i, model.GetAZs())
		sub := vpcScope.Child(fmt.Sprintf("PublicSubnet%d", i+1))

		subnetID, _ := sub.AddResource("Subnet", "AWS::EC2::Subnet", map[string]interface{}{
			"VpcId":               model.Ref(nc.VpcID),
			"AvailabilityZone":    az,
			"CidrBlock":           model.Select(i, cidrs),
			"MapPublicIpOnLaunch": true,
			"Tags":                nameTag(fmt.Sprintf("%s-public-%d", props.Name, i+1)),
		})
		routeTableID := routeTable(sub, nc.VpcID, subnetID)
		routeID, route := sub.AddResource("DefaultRoute", "AWS::EC2::Route", map[string]interface{}{
			"RouteTableId":         model.Ref(routeTableID),
			"DestinationCidrBlock": "0.0.0.0/0",
			"GatewayId":            model.Ref(igwID),
		})
		route.DependsOn = []string{attachID}

		nc.PublicSubnets = append(nc.PublicSubnets, subnetID)
		nc.PublicRoutes = append(nc.PublicRoutes, routeID)

		if i < props.NATGateways {
			eipID, _ := sub.AddResource("EIP", "AWS::EC2::EIP", map[string]interface{}{
				"Domain": "vpc",
			})
			natID, nat := sub.AddResource("NATGateway", "AWS::EC2::NatGateway", map[string]interface{}{
				"SubnetId":     model.Ref(subnetID),
				"AllocationId": model.GetAtt(eipID, "AllocationId"),
				"Tags":         nameTag(fmt.Sprintf("%s-nat-%d", props.Name, i+1)),
			})
			nat.DependsOn = []string{routeID}
			natIDs = append(natIDs, natID)
		}
	}

	for i := 0; i < props.MaxAZs; i++ {
		sub := vpcScope.Child(fmt.Sprintf("PrivateSubnet%d", i+1))

		subnetID, _ := sub.AddResource("Subnet", "AWS::EC2::Subnet", map[string]interface{}{
			"VpcId":               model.Ref(nc.VpcID),
			"AvailabilityZone":    model.Select(i, model.GetAZs()),
			"CidrBlock":           model.Select(props.MaxAZs+i, cidrs),
			"MapPublicIpOnLaunch": false,
			"Tags":                nameTag(fmt.Sprintf("%s-private-%d", props.Name, i+1)),
		})
		routeTableID := routeTable(sub, nc.VpcID, subnetID)
		sub.AddResource("DefaultRoute", "AWS::EC2::Route", map[string]interface{}{
			"RouteTableId":         model.Ref(routeTableID),
			"DestinationCidrBlock": "0.0.0.0/0",
			"NatGatewayId":         model.Ref(natIDs[i%len(natIDs)]),
		})

		nc.PrivateSubnets = append(nc.PrivateSubnets, subnetID)
	}

	insights := "disabled"
	if props.ContainerInsights {
		insights = "enabled"
	}
	nc.ClusterID, _ = scope.AddResource("Cluster", "AWS::ECS::Cluster", map[string]interface{}{
		"ClusterName": props.Name,
		"ClusterSettings": []interface{}{
			map[string]interface{}{"Name": "containerInsights", "Value": insights},
		},
	})

	scope.AddOutput("ClusterArn", "ECS cluster ARN", nc.ClusterArn())

	return nc, nil
}

func routeTable(scope Scope, vpcID, subnetID string) string {
	rtID, _ := scope.AddResource("RouteTable", "AWS::EC2::RouteTable", map[string]interface{}{
		"VpcId": model.Ref(vpcID),
	})
	scope.AddResource("RouteTableAssociation", "AWS::EC2::SubnetRouteTableAssociation", map[string]interface{}{
		"RouteTableId": model.Ref(rtID),
		"SubnetId":     model.Ref(subnetID),
	})
	return rtID
}

func nameTag(name string) []interface{} {
	return []interface{}{map[string]interface{}{"Key": "Name", "Value": name}}
}

func refs(ids []string) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = model.Ref(id)
	}
	return out
}
