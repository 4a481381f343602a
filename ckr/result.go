package ckr

import (
	"fmt"
	"sort"
)

// Result is the value returned by every Cryptoki function (CK_RV).
// Only the low 32 bits of the native value are significant.
type Result uint32

// Result codes defined by PKCS #11 v2.40 and v3.0
const (
	OK                            Result = 0x00000000
	Cancel                        Result = 0x00000001
	HostMemory                    Result = 0x00000002
	SlotIDInvalid                 Result = 0x00000003
	GeneralError                  Result = 0x00000005
	FunctionFailed                Result = 0x00000006
	ArgumentsBad                  Result = 0x00000007
	NoEvent                       Result = 0x00000008
	NeedToCreateThreads           Result = 0x00000009
	CantLock                      Result = 0x0000000a
	AttributeReadOnly             Result = 0x00000010
	AttributeSensitive            Result = 0x00000011
	AttributeTypeInvalid          Result = 0x00000012
	AttributeValueInvalid         Result = 0x00000013
	CopyProhibited                Result = 0x0000001a
	ActionProhibited              Result = 0x0000001b
	DataInvalid                   Result = 0x00000020
	DataLenRange                  Result = 0x00000021
	DeviceError                   Result = 0x00000030
	DeviceMemory                  Result = 0x00000031
	DeviceRemoved                 Result = 0x00000032
	AEADDecryptFailed             Result = 0x00000035
	EncryptedDataInvalid          Result = 0x00000040
	EncryptedDataLenRange         Result = 0x00000041
	FunctionCanceled              Result = 0x00000050
	FunctionNotParallel           Result = 0x00000051
	FunctionNotSupported          Result = 0x00000054
	KeyHandleInvalid              Result = 0x00000060
	KeySizeRange                  Result = 0x00000062
	KeyTypeInconsistent           Result = 0x00000063
	KeyNotNeeded                  Result = 0x00000064
	KeyChanged                    Result = 0x00000065
	KeyNeeded                     Result = 0x00000066
	KeyIndigestible               Result = 0x00000067
	KeyFunctionNotPermitted       Result = 0x00000068
	KeyNotWrappable               Result = 0x00000069
	KeyUnextractable              Result = 0x0000006a
	MechanismInvalid              Result = 0x00000070
	MechanismParamInvalid         Result = 0x00000071
	ObjectHandleInvalid           Result = 0x00000082
	OperationActive               Result = 0x00000090
	OperationNotInitialized       Result = 0x00000091
	PINIncorrect                  Result = 0x000000a0
	PINInvalid                    Result = 0x000000a1
	PINLenRange                   Result = 0x000000a2
	PINExpired                    Result = 0x000000a3
	PINLocked                     Result = 0x000000a4
	SessionClosed                 Result = 0x000000b0
	SessionCount                  Result = 0x000000b1
	SessionHandleInvalid          Result = 0x000000b3
	SessionParallelNotSupported   Result = 0x000000b4
	SessionReadOnly               Result = 0x000000b5
	SessionExists                 Result = 0x000000b6
	SessionReadOnlyExists         Result = 0x000000b7
	SessionReadWriteSOExists      Result = 0x000000b8
	SignatureInvalid              Result = 0x000000c0
	SignatureLenRange             Result = 0x000000c1
	TemplateIncomplete            Result = 0x000000d0
	TemplateInconsistent          Result = 0x000000d1
	TokenNotPresent               Result = 0x000000e0
	TokenNotRecognized            Result = 0x000000e1
	TokenWriteProtected           Result = 0x000000e2
	UnwrappingKeyHandleInvalid    Result = 0x000000f0
	UnwrappingKeySizeRange        Result = 0x000000f1
	UnwrappingKeyTypeInconsistent Result = 0x000000f2
	UserAlreadyLoggedIn           Result = 0x00000100
	UserNotLoggedIn               Result = 0x00000101
	UserPINNotInitialized         Result = 0x00000102
	UserTypeInvalid               Result = 0x00000103
	UserAnotherAlreadyLoggedIn    Result = 0x00000104
	UserTooManyTypes              Result = 0x00000105
	WrappedKeyInvalid             Result = 0x00000110
	WrappedKeyLenRange            Result = 0x00000112
	WrappingKeyHandleInvalid      Result = 0x00000113
	WrappingKeySizeRange          Result = 0x00000114
	WrappingKeyTypeInconsistent   Result = 0x00000115
	RandomSeedNotSupported        Result = 0x00000120
	RandomNoRNG                   Result = 0x00000121
	DomainParamsInvalid           Result = 0x00000130
	CurveNotSupported             Result = 0x00000140
	BufferTooSmall                Result = 0x00000150
	SavedStateInvalid             Result = 0x00000160
	InformationSensitive          Result = 0x00000170
	StateUnsaveable               Result = 0x00000180
	CryptokiNotInitialized        Result = 0x00000190
	CryptokiAlreadyInitialized    Result = 0x00000191
	MutexBad                      Result = 0x000001a0
	MutexNotLocked                Result = 0x000001a1
	NewPINMode                    Result = 0x000001b0
	NextOTP                       Result = 0x000001b1
	ExceededMaxIterations         Result = 0x000001b5
	FIPSSelfTestFailed            Result = 0x000001b6
	LibraryLoadFailed             Result = 0x000001b7
	PINTooWeak                    Result = 0x000001b8
	PublicKeyInvalid              Result = 0x000001b9
	FunctionRejected              Result = 0x00000200
	TokenResourceExceeded         Result = 0x00000201
	OperationCancelFailed         Result = 0x00000202
	KeyExhausted                  Result = 0x00000203
	VendorDefined                 Result = 0x80000000
)

type resultInfo struct {
	name string
	desc string
}

var results = map[Result]resultInfo{
	OK:                            {"CKR_OK", "the function executed successfully"},
	Cancel:                        {"CKR_CANCEL", "the application callback requested cancellation"},
	HostMemory:                    {"CKR_HOST_MEMORY", "insufficient memory on the host"},
	SlotIDInvalid:                 {"CKR_SLOT_ID_INVALID", "the specified slot ID is not valid"},
	GeneralError:                  {"CKR_GENERAL_ERROR", "unrecoverable error, the token may be in an inconsistent state"},
	FunctionFailed:                {"CKR_FUNCTION_FAILED", "the requested function could not be performed"},
	ArgumentsBad:                  {"CKR_ARGUMENTS_BAD", "invalid function arguments"},
	NoEvent:                       {"CKR_NO_EVENT", "no new slot events"},
	NeedToCreateThreads:           {"CKR_NEED_TO_CREATE_THREADS", "the library needs to create threads"},
	CantLock:                      {"CKR_CANT_LOCK", "the requested locking type is not available"},
	AttributeReadOnly:             {"CKR_ATTRIBUTE_READ_ONLY", "the attribute cannot be set or modified"},
	AttributeSensitive:            {"CKR_ATTRIBUTE_SENSITIVE", "the attribute is sensitive or unextractable"},
	AttributeTypeInvalid:          {"CKR_ATTRIBUTE_TYPE_INVALID", "invalid attribute type in template"},
	AttributeValueInvalid:         {"CKR_ATTRIBUTE_VALUE_INVALID", "invalid attribute value in template"},
	CopyProhibited:                {"CKR_COPY_PROHIBITED", "the object cannot be copied"},
	ActionProhibited:              {"CKR_ACTION_PROHIBITED", "the action is prohibited by policy"},
	DataInvalid:                   {"CKR_DATA_INVALID", "the input data is invalid"},
	DataLenRange:                  {"CKR_DATA_LEN_RANGE", "the input data has a bad length"},
	DeviceError:                   {"CKR_DEVICE_ERROR", "a problem occurred with the token or slot"},
	DeviceMemory:                  {"CKR_DEVICE_MEMORY", "insufficient memory on the token"},
	DeviceRemoved:                 {"CKR_DEVICE_REMOVED", "the token was removed during the call"},
	AEADDecryptFailed:             {"CKR_AEAD_DECRYPT_FAILED", "AEAD authentication failed"},
	EncryptedDataInvalid:          {"CKR_ENCRYPTED_DATA_INVALID", "invalid ciphertext"},
	EncryptedDataLenRange:         {"CKR_ENCRYPTED_DATA_LEN_RANGE", "ciphertext has a bad length"},
	FunctionCanceled:              {"CKR_FUNCTION_CANCELED", "the function was canceled"},
	FunctionNotParallel:           {"CKR_FUNCTION_NOT_PARALLEL", "no function executing in parallel"},
	FunctionNotSupported:          {"CKR_FUNCTION_NOT_SUPPORTED", "the function is not supported by the library"},
	KeyHandleInvalid:              {"CKR_KEY_HANDLE_INVALID", "the key handle is not valid"},
	KeySizeRange:                  {"CKR_KEY_SIZE_RANGE", "the key size is outside the supported range"},
	KeyTypeInconsistent:           {"CKR_KEY_TYPE_INCONSISTENT", "the key type does not match the mechanism"},
	KeyNotNeeded:                  {"CKR_KEY_NOT_NEEDED", "an extraneous key was supplied"},
	KeyChanged:                    {"CKR_KEY_CHANGED", "the key differs from the saved session key"},
	KeyNeeded:                     {"CKR_KEY_NEEDED", "the saved state requires keys"},
	KeyIndigestible:               {"CKR_KEY_INDIGESTIBLE", "the key cannot be digested"},
	KeyFunctionNotPermitted:       {"CKR_KEY_FUNCTION_NOT_PERMITTED", "the key attributes do not permit the operation"},
	KeyNotWrappable:               {"CKR_KEY_NOT_WRAPPABLE", "the key cannot be wrapped"},
	KeyUnextractable:              {"CKR_KEY_UNEXTRACTABLE", "the key is unextractable"},
	MechanismInvalid:              {"CKR_MECHANISM_INVALID", "invalid mechanism"},
	MechanismParamInvalid:         {"CKR_MECHANISM_PARAM_INVALID", "invalid mechanism parameters"},
	ObjectHandleInvalid:           {"CKR_OBJECT_HANDLE_INVALID", "the object handle is not valid"},
	OperationActive:               {"CKR_OPERATION_ACTIVE", "an operation is already active"},
	OperationNotInitialized:       {"CKR_OPERATION_NOT_INITIALIZED", "no active operation of this type"},
	PINIncorrect:                  {"CKR_PIN_INCORRECT", "the PIN is incorrect"},
	PINInvalid:                    {"CKR_PIN_INVALID", "the PIN has invalid characters"},
	PINLenRange:                   {"CKR_PIN_LEN_RANGE", "the PIN is too long or too short"},
	PINExpired:                    {"CKR_PIN_EXPIRED", "the PIN has expired"},
	PINLocked:                     {"CKR_PIN_LOCKED", "the PIN is locked"},
	SessionClosed:                 {"CKR_SESSION_CLOSED", "the session was closed during the call"},
	SessionCount:                  {"CKR_SESSION_COUNT", "too many sessions are open"},
	SessionHandleInvalid:          {"CKR_SESSION_HANDLE_INVALID", "the session handle is not valid"},
	SessionParallelNotSupported:   {"CKR_SESSION_PARALLEL_NOT_SUPPORTED", "parallel sessions are not supported"},
	SessionReadOnly:               {"CKR_SESSION_READ_ONLY", "the session is read-only"},
	SessionExists:                 {"CKR_SESSION_EXISTS", "a session is already open"},
	SessionReadOnlyExists:         {"CKR_SESSION_READ_ONLY_EXISTS", "a read-only session exists, SO cannot log in"},
	SessionReadWriteSOExists:      {"CKR_SESSION_READ_WRITE_SO_EXISTS", "a read/write SO session exists"},
	SignatureInvalid:              {"CKR_SIGNATURE_INVALID", "the signature is invalid"},
	SignatureLenRange:             {"CKR_SIGNATURE_LEN_RANGE", "the signature has a bad length"},
	TemplateIncomplete:            {"CKR_TEMPLATE_INCOMPLETE", "the template is incomplete"},
	TemplateInconsistent:          {"CKR_TEMPLATE_INCONSISTENT", "the template has conflicting attributes"},
	TokenNotPresent:               {"CKR_TOKEN_NOT_PRESENT", "the token is not present in the slot"},
	TokenNotRecognized:            {"CKR_TOKEN_NOT_RECOGNIZED", "the token is not recognized"},
	TokenWriteProtected:           {"CKR_TOKEN_WRITE_PROTECTED", "the token is write-protected"},
	UnwrappingKeyHandleInvalid:    {"CKR_UNWRAPPING_KEY_HANDLE_INVALID", "the unwrapping key handle is not valid"},
	UnwrappingKeySizeRange:        {"CKR_UNWRAPPING_KEY_SIZE_RANGE", "the unwrapping key size is out of range"},
	UnwrappingKeyTypeInconsistent: {"CKR_UNWRAPPING_KEY_TYPE_INCONSISTENT", "the unwrapping key type is inconsistent"},
	UserAlreadyLoggedIn:           {"CKR_USER_ALREADY_LOGGED_IN", "the user is already logged in"},
	UserNotLoggedIn:               {"CKR_USER_NOT_LOGGED_IN", "the user is not logged in"},
	UserPINNotInitialized:         {"CKR_USER_PIN_NOT_INITIALIZED", "the user PIN is not initialized"},
	UserTypeInvalid:               {"CKR_USER_TYPE_INVALID", "invalid user type"},
	UserAnotherAlreadyLoggedIn:    {"CKR_USER_ANOTHER_ALREADY_LOGGED_IN", "another user is already logged in"},
	UserTooManyTypes:              {"CKR_USER_TOO_MANY_TYPES", "too many distinct users are logged in"},
	WrappedKeyInvalid:             {"CKR_WRAPPED_KEY_INVALID", "the wrapped key is invalid"},
	WrappedKeyLenRange:            {"CKR_WRAPPED_KEY_LEN_RANGE", "the wrapped key has a bad length"},
	WrappingKeyHandleInvalid:      {"CKR_WRAPPING_KEY_HANDLE_INVALID", "the wrapping key handle is not valid"},
	WrappingKeySizeRange:          {"CKR_WRAPPING_KEY_SIZE_RANGE", "the wrapping key size is out of range"},
	WrappingKeyTypeInconsistent:   {"CKR_WRAPPING_KEY_TYPE_INCONSISTENT", "the wrapping key type is inconsistent"},
	RandomSeedNotSupported:        {"CKR_RANDOM_SEED_NOT_SUPPORTED", "the RNG cannot be seeded"},
	RandomNoRNG:                   {"CKR_RANDOM_NO_RNG", "the token has no RNG"},
	DomainParamsInvalid:           {"CKR_DOMAIN_PARAMS_INVALID", "invalid domain parameters"},
	CurveNotSupported:             {"CKR_CURVE_NOT_SUPPORTED", "the curve is not supported"},
	BufferTooSmall:                {"CKR_BUFFER_TOO_SMALL", "the output buffer is too small"},
	SavedStateInvalid:             {"CKR_SAVED_STATE_INVALID", "the saved state is invalid"},
	InformationSensitive:          {"CKR_INFORMATION_SENSITIVE", "the information is sensitive"},
	StateUnsaveable:               {"CKR_STATE_UNSAVEABLE", "the state cannot be saved"},
	CryptokiNotInitialized:        {"CKR_CRYPTOKI_NOT_INITIALIZED", "C_Initialize has not been called"},
	CryptokiAlreadyInitialized:    {"CKR_CRYPTOKI_ALREADY_INITIALIZED", "C_Initialize has already been called"},
	MutexBad:                      {"CKR_MUTEX_BAD", "bad mutex object"},
	MutexNotLocked:                {"CKR_MUTEX_NOT_LOCKED", "the mutex is not locked"},
	NewPINMode:                    {"CKR_NEW_PIN_MODE", "a new PIN must be supplied"},
	NextOTP:                       {"CKR_NEXT_OTP", "the next OTP value is required"},
	ExceededMaxIterations:         {"CKR_EXCEEDED_MAX_ITERATIONS", "maximum iterations exceeded"},
	FIPSSelfTestFailed:            {"CKR_FIPS_SELF_TEST_FAILED", "FIPS self test failed"},
	LibraryLoadFailed:             {"CKR_LIBRARY_LOAD_FAILED", "a dependent library could not be loaded"},
	PINTooWeak:                    {"CKR_PIN_TOO_WEAK", "the PIN is too weak"},
	PublicKeyInvalid:              {"CKR_PUBLIC_KEY_INVALID", "the public key fails a consistency check"},
	FunctionRejected:              {"CKR_FUNCTION_REJECTED", "the signature request was rejected by the user"},
	TokenResourceExceeded:         {"CKR_TOKEN_RESOURCE_EXCEEDED", "token resources exceeded"},
	OperationCancelFailed:         {"CKR_OPERATION_CANCEL_FAILED", "the operation could not be canceled"},
	KeyExhausted:                  {"CKR_KEY_EXHAUSTED", "the key usage limit is exhausted"},
	VendorDefined:                 {"CKR_VENDOR_DEFINED", "vendor defined result"},
}

var byName = func() map[string]Result {
	m := make(map[string]Result, len(results))
	for r, i := range results {
		m[i.name] = r
	}
	return m
}()

// Map converts the native return value of a Cryptoki call to Result.
// Unknown values are preserved and reported as unrecognized.
func Map(rv uint64) Result {
	return Result(uint32(rv))
}

// Known returns true if the result is one of the named codes
func (r Result) Known() bool {
	_, ok := results[r]
	return ok
}

// IsVendorDefined returns true for codes in the vendor range
func (r Result) IsVendorDefined() bool {
	return r >= VendorDefined
}

// Name returns the symbolic name of the result
func (r Result) Name() string {
	if i, ok := results[r]; ok {
		return i.name
	}
	if r.IsVendorDefined() {
		return fmt.Sprintf("CKR_VENDOR_DEFINED+0x%X", uint32(r-VendorDefined))
	}
	return fmt.Sprintf("CKR_UNRECOGNIZED(0x%08X)", uint32(r))
}

// Description returns human readable description of the result
func (r Result) Description() string {
	if i, ok := results[r]; ok {
		return i.desc
	}
	if r.IsVendorDefined() {
		return "vendor defined result"
	}
	return "unrecognized result code"
}

// String returns the name of the result
func (r Result) String() string {
	return r.Name()
}

// Parse returns Result by its symbolic name, e.g. CKR_PIN_LOCKED
func Parse(name string) (Result, bool) {
	r, ok := byName[name]
	return r, ok
}

// Results returns all named codes in ascending order
func Results() []Result {
	list := make([]Result, 0, len(results))
	for r := range results {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list
}
