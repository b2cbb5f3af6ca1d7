//go:build windows

package identity

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// enforcePermissions replaces the DACL of dir and file with a single ACE
// granting full access to the current user. Inherited entries are dropped.
func enforcePermissions(dir, file string) (bool, error) {
	user, err := windows.GetCurrentProcessToken().GetTokenUser()
	if err != nil {
		return false, fmt.Errorf("reading process token: %w", err)
	}

	for _, p := range []struct {
		path    string
		inherit uint32
	}{
		{dir, windows.SUB_CONTAINERS_AND_OBJECTS_INHERIT},
		{file, windows.NO_INHERITANCE},
	} {
		acl, err := windows.ACLFromEntries([]windows.EXPLICIT_ACCESS{{
			AccessPermissions: windows.GENERIC_ALL,
			AccessMode:        windows.SET_ACCESS,
			Inheritance:       p.inherit,
			Trustee: windows.TRUSTEE{
				TrusteeForm:  windows.TRUSTEE_IS_SID,
				TrusteeType:  windows.TRUSTEE_IS_USER,
				TrusteeValue: windows.TrusteeValueFromSID(user.User.Sid),
			},
		}}, nil)
		if err != nil {
			return false, fmt.Errorf("building ACL: %w", err)
		}

		err = windows.SetNamedSecurityInfo(p.path, windows.SE_FILE_OBJECT,
			windows.DACL_SECURITY_INFORMATION|windows.PROTECTED_DACL_SECURITY_INFORMATION,
			nil, nil, acl, nil)
		if err != nil {
			return false, fmt.Errorf("setting DACL on %s: %w", p.path, err)
		}
	}

	return false, nil
}
